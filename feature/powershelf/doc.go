// Package powershelf reconciles the power shelves of a site.
//
// The lifecycle matches switches: a shelf is initialized, its status is
// fetched and its configuration checked before it becomes ready. A shelf
// without PSUs or with an unparsable BMC MAC ends in the error state.
package powershelf
