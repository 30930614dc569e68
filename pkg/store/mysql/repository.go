package mysql

// Repository aggregates the MySQL repositories
type Repository struct {
	ds *Datastore

	ScalingEvent *ScalingEventRepository
	WorkerEvent  *WorkerEventRepository
}

// NewRepository opens the datastore, migrates the audit tables, and wires
// the sub-repositories.
func NewRepository(dsn string) (*Repository, error) {
	ds, err := NewDatastore(dsn)
	if err != nil {
		return nil, err
	}
	if err := ds.GetDB().AutoMigrate(&ScalingEvent{}, &WorkerEvent{}); err != nil {
		ds.Close()
		return nil, err
	}

	return &Repository{
		ds:           ds,
		ScalingEvent: NewScalingEventRepository(ds),
		WorkerEvent:  NewWorkerEventRepository(ds),
	}, nil
}

// GetDatastore returns the underlying datastore for transaction support
func (r *Repository) GetDatastore() *Datastore {
	return r.ds
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.ds.Close()
}
