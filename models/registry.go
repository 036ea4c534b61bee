// Package models exposes the drive controller as viam resources: a base for
// command ingress plus movement-sensor and sensor models for odometry and
// safety-function egress.
package models

import (
	"sync"

	"github.com/pkg/errors"

	"swddrive/drive"
)

// The sensor models attach to a running drive controller owned by the base
// resource. The base registers its controller here under its short name and
// the sensors look it up; dependency declarations in the sensor configs make
// the framework construct the base first.
var (
	controllersMu sync.Mutex
	controllers   = map[string]*drive.Controller{}
)

func registerController(name string, ctrl *drive.Controller) {
	controllersMu.Lock()
	defer controllersMu.Unlock()
	controllers[name] = ctrl
}

func deregisterController(name string) {
	controllersMu.Lock()
	defer controllersMu.Unlock()
	delete(controllers, name)
}

func lookupController(name string) (*drive.Controller, error) {
	controllersMu.Lock()
	defer controllersMu.Unlock()
	ctrl, ok := controllers[name]
	if !ok {
		return nil, errors.Errorf("no drive base named %q is configured", name)
	}
	return ctrl, nil
}
