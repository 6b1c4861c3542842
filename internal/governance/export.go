package governance

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

var (
	accountHeader = []string{"Name", "Email", "Role", "Status", "Branch", "Created At", "Last Login"}
	roleHeader    = []string{"Name", "Description", "Scope", "Users", "Created"}
)

// ExportAccounts writes the account view selected by q as CSV. Every field is
// double-quoted; a missing last login is an empty field.
func (f *Facade) ExportAccounts(w io.Writer, q AccountQuery) error {
	cw := newQuotedWriter(w)
	cw.write(accountHeader)
	for _, a := range f.ListAccounts(q) {
		lastLogin := ""
		if a.LastLoginAt != nil {
			lastLogin = a.LastLoginAt.UTC().Format(time.RFC3339)
		}
		cw.write([]string{
			a.Name,
			a.Email,
			a.Role,
			string(a.Status),
			a.Branch,
			a.CreatedAt.UTC().Format(time.RFC3339),
			lastLogin,
		})
	}
	return cw.flush()
}

// ExportRoles writes the role view selected by q as CSV.
func (f *Facade) ExportRoles(w io.Writer, q RoleQuery) error {
	cw := newQuotedWriter(w)
	cw.write(roleHeader)
	for _, r := range f.ListRoles(q) {
		cw.write([]string{
			r.Name,
			r.Description,
			string(r.Scope),
			strconv.Itoa(r.UsersCount),
			r.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return cw.flush()
}

// quotedWriter emits RFC 4180 records with every field quoted, which
// encoding/csv only does for fields that need it.
type quotedWriter struct {
	w   *bufio.Writer
	err error
}

func newQuotedWriter(w io.Writer) *quotedWriter {
	return &quotedWriter{w: bufio.NewWriter(w)}
}

func (q *quotedWriter) write(fields []string) {
	if q.err != nil {
		return
	}
	for i, field := range fields {
		if i > 0 {
			q.put(",")
		}
		q.put(`"` + strings.ReplaceAll(field, `"`, `""`) + `"`)
	}
	q.put("\r\n")
}

func (q *quotedWriter) put(s string) {
	if q.err == nil {
		_, q.err = q.w.WriteString(s)
	}
}

func (q *quotedWriter) flush() error {
	if q.err != nil {
		return q.err
	}
	return q.w.Flush()
}
