// Package conntable keeps the set of live client sockets and their peer addresses.
package conntable

import "time"

// Conn - accepted client connection.
type Conn struct {
	// FD - socket descriptor, unique key in Table
	FD int
	// Addr - peer address used to tag outgoing fragments, dotted quad for IPv4
	Addr string
	// ID - session identifier, used for logging only
	ID string
	// Since - accept time
	Since time.Time
}

// Table - active connections keyed by socket descriptor.
// Table is owned by the event loop and is not safe for concurrent use.
type Table struct {
	list map[int]*Conn
}

// New - builds empty Table.
func New() *Table {
	return &Table{
		list: make(map[int]*Conn),
	}
}

// Len - returns number of active connections.
func (t *Table) Len() int {
	return len(t.list)
}

// Lookup - finds connection by socket descriptor.
func (t *Table) Lookup(fd int) (c *Conn, ok bool) {
	c, ok = t.list[fd]
	return c, ok
}

// Insert - adds connection. Returns false if its descriptor is kept already.
func (t *Table) Insert(c *Conn) bool {
	if c == nil {
		return false
	}
	if _, ok := t.list[c.FD]; ok {
		return false
	}
	t.list[c.FD] = c
	return true
}

// Remove - deletes connection and returns it.
func (t *Table) Remove(fd int) (*Conn, bool) {
	c, ok := t.list[fd]
	if ok {
		delete(t.list, fd)
	}
	return c, ok
}

// Scan - calls f once for every connection.
// f must not insert into the Table; removing the visited connection is allowed.
func (t *Table) Scan(f func(*Conn)) {
	for _, c := range t.list {
		f(c)
	}
}
