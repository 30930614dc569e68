package mysql

import "github.com/NEHONIX/FortifyJS-sub002/pkg/store/mysql/model"

// Row types re-exported so callers rarely need the model package.
type (
	ScalingEvent = model.ScalingEvent
	WorkerEvent  = model.WorkerEvent
	JSONMap      = model.JSONMap
)
