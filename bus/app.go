package bus

import (
	"context"
	"time"
)

// Snapshot is the opaque export of one app's data.
type Snapshot map[string]any

// App is the contract every registered application satisfies.
type App interface {
	Initialize(ctx context.Context) error
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error
	ExportData(ctx context.Context) (Snapshot, error)
	ImportData(ctx context.Context, data Snapshot) error
}

// DataRequestHandler is implemented by apps that answer SendRequest queries.
type DataRequestHandler interface {
	HandleDataRequest(ctx context.Context, fromApp string, q Query) Response
}

// AppStatus is the lifecycle state of a registered app.
type AppStatus string

const (
	StatusUnregistered AppStatus = "UNREGISTERED"
	StatusRegistered   AppStatus = "REGISTERED"
	StatusInitializing AppStatus = "INITIALIZING"
	StatusActive       AppStatus = "ACTIVE"
	StatusInactive     AppStatus = "INACTIVE"
	StatusError        AppStatus = "ERROR"
)

type initializer interface {
	Initialize(ctx context.Context) error
}

type activator interface {
	Activate(ctx context.Context) error
}

type deactivator interface {
	Deactivate(ctx context.Context) error
}

type exporter interface {
	ExportData(ctx context.Context) (Snapshot, error)
}

type importer interface {
	ImportData(ctx context.Context, data Snapshot) error
}

// Capabilities records which parts of the App contract a candidate implements.
type Capabilities struct {
	Initialize        bool
	Activate          bool
	Deactivate        bool
	ExportData        bool
	ImportData        bool
	HandleDataRequest bool
}

// CheckCapabilities inspects candidate without registering it.
func CheckCapabilities(candidate any) Capabilities {
	if candidate == nil {
		return Capabilities{}
	}
	var c Capabilities
	_, c.Initialize = candidate.(initializer)
	_, c.Activate = candidate.(activator)
	_, c.Deactivate = candidate.(deactivator)
	_, c.ExportData = candidate.(exporter)
	_, c.ImportData = candidate.(importer)
	_, c.HandleDataRequest = candidate.(DataRequestHandler)
	return c
}

// Missing lists the required capabilities that are absent, in contract order.
// HandleDataRequest is optional and never reported.
func (c Capabilities) Missing() []string {
	var missing []string
	if !c.Initialize {
		missing = append(missing, "initialize")
	}
	if !c.Activate {
		missing = append(missing, "activate")
	}
	if !c.Deactivate {
		missing = append(missing, "deactivate")
	}
	if !c.ExportData {
		missing = append(missing, "exportData")
	}
	if !c.ImportData {
		missing = append(missing, "importData")
	}
	return missing
}

// Complete reports whether every required capability is present.
func (c Capabilities) Complete() bool { return len(c.Missing()) == 0 }

type appEntry struct {
	name         string
	app          App
	status       AppStatus
	lastErr      error
	registeredAt time.Time
}

// AppInfo is a read-only view of a registered app.
type AppInfo struct {
	Name         string
	Status       AppStatus
	LastError    error
	RegisteredAt time.Time
	AnswersQuery bool
}
