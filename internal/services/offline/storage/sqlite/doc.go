// Package sqlite implements the sync agent's local store on SQLite: the
// pending-operation queue, the cart/order/inventory object stores and the
// response cache all live in one database file.
package sqlite
