package cli

import (
	"fmt"
	"io"

	"github.com/aretw0/chatflow/internal/presentation/graph"
	"github.com/aretw0/chatflow/pkg/adapters/file"
	"github.com/aretw0/chatflow/pkg/domain"
)

// Graph prints the Mermaid diagram of the flow stored at path. When s is not
// nil the nodes it visited and its current node are highlighted.
func Graph(w io.Writer, path string, s *domain.Session) error {
	flow, err := file.LoadFile(path)
	if err != nil {
		return err
	}
	if s != nil && s.FlowID != flow.ID {
		return fmt.Errorf("session %s belongs to flow %s, not %s", s.SessionID, s.FlowID, flow.ID)
	}
	_, err = io.WriteString(w, graph.GenerateMermaid(flow, graph.OverlayFromSession(s)))
	return err
}
