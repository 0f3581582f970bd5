// Package loader wires object kind features into the server.
//
// Every object kind lives in a feature package that implements
// ControllerFeature: it serves the kind's collection routes, migrates the
// object table together with the controller tables, and hands out its
// controller. The Manager applies these steps to the enabled features in
// registration order:
//
//	mgr := loader.NewManager()
//	mgr.Register(switches.NewFeature(deps))
//	_ = mgr.MigrateAll(ctx, db)
//	_ = mgr.VerifyAll(db)
//	registry, _ := mgr.Registry()
//	_ = mgr.LoadAll(app)
package loader
