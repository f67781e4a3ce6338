package flashbots

import "strings"

const (
	codeMethodNotFound = -32601
	reasonNoSimulation = "simulation not supported by relay"
)

// Explain maps common relay and transport failures to a short readable reason.
// Unrecognised messages come back unchanged.
func Explain(msg string) string {
	ls := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case strings.Contains(ls, "unsupported: eth_callbundle"),
		strings.Contains(ls, "invalid method"),
		strings.Contains(ls, "method not found"),
		strings.Contains(ls, "method not available"):
		return reasonNoSimulation
	case strings.Contains(ls, "insufficient funds for gas"):
		return "insufficient ETH for simulation"
	case strings.Contains(ls, "nonce too low"):
		return "nonce already used"
	case strings.Contains(ls, "non-json"), strings.Contains(ls, "invalid character '<'"):
		return "non-JSON/HTML response (proxy/cf?)"
	case strings.Contains(ls, "dial tcp"), strings.Contains(ls, "lookup "):
		return "network/DNS error"
	}
	return msg
}
