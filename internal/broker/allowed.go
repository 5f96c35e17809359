package broker

// StopState is always allowed.
const StopState = "Stop"

// AllowedStates is the allowed-state list for hint: "Stop" first, then
// hint unless it is "Stop" itself.
func AllowedStates(hint string) []string {
	if hint == StopState {
		return []string{StopState}
	}
	return []string{StopState, hint}
}
