package pinkeep

// changeFanout forwards a pinned set change to every listener.
type changeFanout []func()

func (f changeFanout) notify() {
	for _, fn := range f {
		if fn == nil {
			continue
		}
		fn()
	}
}
