package web

// StartWorkflowRequest begins a workflow on the kind named in the URL.
type StartWorkflowRequest struct {
	Amount    string `json:"amount"              validate:"required"`
	Recipient string `json:"recipient,omitempty" validate:"omitempty,eth_addr"`
}
