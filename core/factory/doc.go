// Package factory is the registry used to build pluggable modules (document
// stores, metrics sinks) from configuration. A module is selected by its type
// string and receives the raw settings map of its config section, which the
// factory decodes into a typed struct.
//
// Example usage:
//
//	stores := factory.NewRegistry[sync.DocumentStore]()
//	_ = stores.Register("sqlite", func(conf map[string]any) (sync.DocumentStore, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return sqlite.Open(c.Path)
//	})
//	st, err := stores.Create(factory.ModuleConfig{Type: "sqlite", Conf: map[string]any{"path": "runsheet.db"}})
package factory
