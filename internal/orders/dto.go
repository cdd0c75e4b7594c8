package orders

// TransitionInput is the optional body of a transition request.
type TransitionInput struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}
