// Package register wires the concrete connector constructors into a factory.
// Kept separate from package connector so implementations can depend on the
// contract without a cycle.
package register

import (
	"arrdeck-go/internal/config"
	"arrdeck-go/internal/connector"
	"arrdeck-go/internal/connector/arr"
	"arrdeck-go/internal/connector/download"
)

// Defaults registers every built-in connector constructor. Service types in
// the configuration enum without a constructor here (sabnzbd, jellyfin) fail
// construction with ErrUnsupportedServiceType until an adapter lands.
func Defaults(f *connector.Factory) {
	f.Register(config.ServiceSonarr, arr.New)
	f.Register(config.ServiceRadarr, arr.New)
	f.Register(config.ServiceLidarr, arr.New)
	f.Register(config.ServiceQBittorrent, download.NewQBittorrent)
}
