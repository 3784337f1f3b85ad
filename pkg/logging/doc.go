// Package logging configures the structured logger used across stompd.
//
// It wraps log/slog. Components take a *slog.Logger through an option or a
// field and fall back to Nop() when none is given:
//
//	log := logging.New(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatJSON,
//	})
//	log.Info("listening", "addr", ":7777", "mode", "reactor")
//
// Connection-scoped loggers add conn_id, remote, transport and session
// attributes with log.With.
package logging
