package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"fame-flywheel/internal/models"
)

// ExecGenerator bridges to an external generation pipeline: the claimed job
// is written to the command's stdin as JSON and the artifacts are read back
// from stdout. The pipeline itself (text, speech, images, assembly) stays
// outside this module.
type ExecGenerator struct {
	Command []string
}

func (g *ExecGenerator) Generate(ctx context.Context, job models.Job) (Artifacts, error) {
	if len(g.Command) == 0 {
		return Artifacts{}, errors.New("no generator command configured")
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return Artifacts{}, fmt.Errorf("encode job: %w", err)
	}

	cmd := exec.CommandContext(ctx, g.Command[0], g.Command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return Artifacts{}, fmt.Errorf("run generator: %w", err)
	}

	var artifacts Artifacts
	if err := json.Unmarshal(out.Bytes(), &artifacts); err != nil {
		return Artifacts{}, fmt.Errorf("decode artifacts: %w", err)
	}
	if artifacts.Script == "" {
		return Artifacts{}, errors.New("generator returned no script")
	}
	return artifacts, nil
}

var _ Generator = (*ExecGenerator)(nil)
