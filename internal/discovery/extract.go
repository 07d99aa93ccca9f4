package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/scrimworks/vendorvet/internal/task"
)

// target is the executor output shape for request parsing.
type target struct {
	Material string `json:"material"`
	Location string `json:"location"`
}

// extractTarget parses the material and location out of a free-text request.
func (p *Pipeline) extractTarget(ctx context.Context, prompt string) (string, string, error) {
	instruction := fmt.Sprintf(`From the following user request, extract the 'material' and the 'location'.
Return a JSON object with keys "material" and "location". Use an empty string
for anything the request does not state.

User request: %q`, prompt)

	var out target
	if err := p.exec.Execute(ctx, instruction, task.TierLite, &out); err != nil {
		return "", "", err
	}

	material := strings.TrimSpace(out.Material)
	location := strings.TrimSpace(out.Location)
	var missing []string
	if material == "" {
		missing = append(missing, "material")
	}
	if location == "" {
		missing = append(missing, "location")
	}
	if len(missing) > 0 {
		return material, location, &task.AmbiguousRequestError{Missing: missing}
	}
	return material, location, nil
}
