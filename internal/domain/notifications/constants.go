package notifications

const (
	JobGateOpened = "gate_opened_email"

	gateOpenedSubject = "Evaluations are open"
)
