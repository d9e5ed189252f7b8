package evhttp

import (
	"github.com/evwire/evhttp/internal/dialer"
)

// Dialers are responsible for creating the underlying streams that requests
// are written to and responses read from.
//
// A Dialer MUST NOT hold per-request state, which means a Dialer can be
// swapped out from a [Client] without pain. It SHOULD hold connection
// related configs like *[crypto/tls.Config] or [ResolveConfig].
type Dialer = dialer.Dialer

// CoreDialer is the default [Dialer]: custom resolution, proxy tunnels,
// TLS and per-host connection pooling.
type CoreDialer = dialer.CoreDialer

// ResolveConfig customizes name resolution: a dedicated DNS server,
// a fixed network ("tcp4"/"tcp6") or static host mappings.
type ResolveConfig = dialer.ResolveConfig
