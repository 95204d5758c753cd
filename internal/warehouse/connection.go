package warehouse

import "database/sql"

// Connection is an authenticated warehouse handle. It is either a *Session
// or a *DirectConnection; no other implementations exist.
type Connection interface {
	DB() *sql.DB
	isConnection()
}

// Session is a handle issued by the warehouse runtime. Its token is the
// short-lived OAuth token the runtime mounts into the container.
type Session struct {
	Handle *sql.DB
	Host   string
	Scheme string
	Token  string
}

func (s *Session) DB() *sql.DB { return s.Handle }

func (*Session) isConnection() {}

// DirectConnection is a handle opened with credentials held by this process.
type DirectConnection struct {
	Handle    *sql.DB
	Host      string
	Scheme    string
	Token     string
	TokenType string
}

func (c *DirectConnection) DB() *sql.DB { return c.Handle }

func (*DirectConnection) isConnection() {}
