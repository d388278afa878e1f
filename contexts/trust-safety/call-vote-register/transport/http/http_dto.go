package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AddVoteRequest carries one ballot. Both flags may be true, or both false.
type AddVoteRequest struct {
	Legitimate bool `json:"legitimate"`
	Fraudulent bool `json:"fraudulent"`
}

type AddVoteResponse struct {
	CallID          string `json:"call_id"`
	Message         string `json:"message"`
	Verdict         string `json:"verdict"`
	LegitimateCount int    `json:"legitimate_count"`
	FraudulentCount int    `json:"fraudulent_count"`
	TotalVotes      int    `json:"total_votes"`
}

type VerdictResponse struct {
	CallID          string `json:"call_id"`
	Verdict         string `json:"verdict"`
	Message         string `json:"message"`
	LegitimateCount int    `json:"legitimate_count"`
	FraudulentCount int    `json:"fraudulent_count"`
	TotalVotes      int    `json:"total_votes"`
}

type ClearResponse struct {
	Message      string `json:"message"`
	Existed      bool   `json:"existed"`
	RemovedCalls int    `json:"removed_calls,omitempty"`
}

type CallIDsResponse struct {
	CallIDs []string `json:"call_ids"`
	Count   int      `json:"count"`
}

type VoteItem struct {
	Legitimate bool `json:"legitimate"`
	Fraudulent bool `json:"fraudulent"`
}

// VotesResponse reports votes as null when the call id was never voted on.
type VotesResponse struct {
	CallID string     `json:"call_id"`
	Found  bool       `json:"found"`
	Votes  []VoteItem `json:"votes"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
