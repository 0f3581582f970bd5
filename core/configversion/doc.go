// Package configversion provides the version stamp attached to every
// controller-owned state and the Versioned wrapper that pairs a value with it.
//
// # Format
//
// A ConfigVersion is rendered as "V<nr>-T<unix micros>", for example
// "V3-T1712345678901234". The number increases by one on every successful
// write. The timestamp records when the current value was written, which the
// controller uses to compute how long an object has been in its state.
//
// # Persistence
//
// ConfigVersion implements sql.Scanner and driver.Valuer, so it can be used
// directly as a gorm column (stored as a string).
//
// # Usage
//
//	v := configversion.Initial()
//	next := v.Increment()
//	fmt.Println(next) // V2-T...
package configversion
