package agentloop

import (
	"crypto/sha256"
	"fmt"
)

// actionSignature identifies an ACTION by tool name and input.
func actionSignature(step Step) string {
	h := sha256.Sum256([]byte(step.InputText()))
	return fmt.Sprintf("%s:%x", step.Tool, h[:8])
}

// DetectLoop reports whether the last windowSize actions repeat a pattern
// of length 1, 2 or 3 at least twice.
func DetectLoop(actions []Step, windowSize int) bool {
	if windowSize < 2 || len(actions) < windowSize {
		return false
	}
	sigs := make([]string, windowSize)
	for i, step := range actions[len(actions)-windowSize:] {
		sigs[i] = actionSignature(step)
	}

	for patternLen := 1; patternLen <= 3 && patternLen*2 <= windowSize; patternLen++ {
		if windowSize%patternLen != 0 {
			continue
		}
		if repeats(sigs, patternLen) {
			return true
		}
	}
	return false
}

func repeats(sigs []string, patternLen int) bool {
	for i := patternLen; i < len(sigs); i++ {
		if sigs[i] != sigs[i%patternLen] {
			return false
		}
	}
	return true
}
