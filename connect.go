package mytunmcp

import (
	"context"
	"time"
)

// ConnectDB forces the tunnel and session up and reports connection status.
// Like every operation it resets the idle timer on success, so a connect
// followed by a full idle window still tears the tunnel back down.
func (m *MysqlTunnelMcp) ConnectDB(ctx context.Context) (*ConnectOutput, error) {
	startTime := time.Now()

	output := &ConnectOutput{
		Host:     m.config.Database.Host,
		Port:     m.config.Database.Port,
		Database: m.config.Database.Name,
		Tunnel:   "closed",
	}
	err := m.orch.Run(ctx, func(ctx context.Context, s Session) error {
		output.Connected = s.TestConnection(ctx)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if m.orch.TunnelAlive() {
		output.Tunnel = "open"
	}

	m.logger.Info().
		Bool("connected", output.Connected).
		Str("tunnel", output.Tunnel).
		Dur("duration", time.Since(startTime)).
		Msg("ConnectDB executed")

	return output, nil
}
