package webhook

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
)

// VersionError reports a caller whose protocol version is incompatible with
// the server's.
type VersionError struct {
	Version       string
	ServerVersion string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf(
		"Your dialogue engine version %s is incompatible with action server version %s. Major and minor versions must match.",
		e.Version, e.ServerVersion,
	)
}

// VersionChecker decides whether a caller version may be served. Versions
// are compatible when their major and minor components are equal.
type VersionChecker struct {
	server *semver.Version
	logger zerolog.Logger
}

// NewVersionChecker creates a checker for serverVersion.
func NewVersionChecker(serverVersion string, logger zerolog.Logger) (*VersionChecker, error) {
	v, err := semver.NewVersion(serverVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid server version %q: %w", serverVersion, err)
	}
	return &VersionChecker{
		server: v,
		logger: logger.With().Str("component", "version-check").Logger(),
	}, nil
}

// ServerVersion returns the server protocol version.
func (c *VersionChecker) ServerVersion() string {
	return c.server.Original()
}

// Check returns a *VersionError for an incompatible version. A missing or
// unparseable version is accepted with a warning since older callers do not
// send one.
func (c *VersionChecker) Check(version string) error {
	if version == "" {
		c.logger.Warn().
			Str("server_version", c.ServerVersion()).
			Msg("Caller did not send a version, compatibility cannot be checked")
		return nil
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		c.logger.Warn().
			Str("version", version).
			Err(err).
			Msg("Could not parse caller version, compatibility cannot be checked")
		return nil
	}

	if v.Major() != c.server.Major() || v.Minor() != c.server.Minor() {
		err := &VersionError{Version: version, ServerVersion: c.ServerVersion()}
		c.logger.Warn().
			Str("version", version).
			Str("server_version", c.ServerVersion()).
			Msg("Incompatible caller version")
		return err
	}

	return nil
}
