package hostbridge

const (
	InstanceManagerHostAPI    = "InstanceManagerHostApi"
	InstanceManagerFlutterAPI = "InstanceManagerFlutterApi"
)

func (r *Registrar) setupInstanceManagerAPI() {
	r.Handle(r.ChannelName(InstanceManagerHostAPI, "remove"), func(call *Call) (any, error) {
		id, err := call.Identifier(0)
		if err != nil {
			return nil, err
		}
		// the UI side may race ahead of a sweep; an unknown id is fine
		if _, ok := r.instances.Remove(id); !ok {
			r.log.Debugf("remove of unknown instance %d", id)
		}
		return nil, nil
	})
	r.Handle(r.ChannelName(InstanceManagerHostAPI, "release"), func(call *Call) (any, error) {
		id, err := call.Identifier(0)
		if err != nil {
			return nil, err
		}
		if !r.instances.Release(id) {
			r.log.Debugf("release of unknown instance %d", id)
		}
		return nil, nil
	})
	r.Handle(r.ChannelName(InstanceManagerHostAPI, "clear"), func(*Call) (any, error) {
		r.instances.Clear()
		return nil, nil
	})
}

// dispose tells the UI side that the host instance behind identifier has
// been collected.
func (r *Registrar) dispose(identifier int64) {
	name := r.ChannelName(InstanceManagerFlutterAPI, "dispose")
	err := r.Emit(name, []any{identifier}, func(_ any, err error) {
		if err != nil {
			r.log.Debugf("dispose %d: %v", identifier, err)
		}
	})
	if err != nil {
		r.log.Debugf("dispose %d: %v", identifier, err)
	}
}
