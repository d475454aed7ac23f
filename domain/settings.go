package domain

import "time"

type InstanceSettings struct {
	InstanceName        string
	InstanceDescription string
	InstanceDomain      string
	OpenRegistrations   bool
	FederationEnabled   bool
	UpdatedAt           time.Time
}
