package broker

import "fmt"

// ErrorKind classifies a BrokerError for callers that need to branch on
// failure mode (e.g. the risk gate treats timeout differently from auth).
type ErrorKind string

const (
	ErrKindNetwork  ErrorKind = "network"
	ErrKindAuth     ErrorKind = "auth"
	ErrKindExchange ErrorKind = "exchange"
	ErrKindTimeout  ErrorKind = "timeout"
)

// BrokerError is the typed error every Client method returns on failure.
type BrokerError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *BrokerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("broker: %s error [%s]: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("broker: %s error: %s", e.Kind, e.Message)
}
