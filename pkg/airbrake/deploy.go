package airbrake

import (
	"context"
	"encoding/json"
	"runtime/debug"

	"go.uber.org/zap"
)

// DeployInfo describes a deploy. Empty Environment and Revision are filled from
// the notifier config and the binary's VCS stamp.
type DeployInfo struct {
	Environment string `json:"environment"`
	Username    string `json:"username,omitempty"`
	Repository  string `json:"repository,omitempty"`
	Revision    string `json:"revision,omitempty"`
	Version     string `json:"version,omitempty"`
}

// Deploy records a deploy. The service resolves the environment's open error
// groups as a side effect; the dedupe window is cleared too so errors that
// survive the release are reported again.
func (n *Notifier) Deploy(ctx context.Context, d DeployInfo) (*Report, error) {
	if d.Environment == "" {
		d.Environment = n.cfg.Environment
	}
	if d.Revision == "" {
		d.Revision = n.cfg.Revision
	}
	if d.Revision == "" {
		d.Revision = buildRevision()
	}
	if d.Version == "" {
		d.Version = n.cfg.AppVersion
	}
	body, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	resp, terr := n.sender.PostJSON(ctx, n.deploysPath, n.query, body)
	report, err := n.report(resp, terr)
	if err == nil && n.dedupe != nil {
		if ferr := n.dedupe.Flush(ctx); ferr != nil {
			n.logger.Warn("could not reset dedupe window after deploy", zap.Error(ferr))
		}
	}
	return report, err
}

// buildRevision returns the commit the binary was built from, if the toolchain
// stamped one.
func buildRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}
