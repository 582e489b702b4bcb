package domain

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
)

// Client is a registered person with a program-membership set.
type Client struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Age      Age       `json:"age"`
	Gender   string    `json:"gender"`
	Contact  string    `json:"contact"`
	Programs []Program `json:"programs"`
}

// UnmarshalJSON decodes a client and normalizes its program set so that a
// nil or duplicated list from the wire never reaches the cache.
func (c *Client) UnmarshalJSON(data []byte) error {
	type wire Client
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = Client(w)
	c.Programs = NormalizePrograms(c.Programs)
	return nil
}

// MarshalJSON always emits programs as an array, never null.
func (c Client) MarshalJSON() ([]byte, error) {
	type wire Client
	w := wire(c)
	if w.Programs == nil {
		w.Programs = []Program{}
	}
	return json.Marshal(w)
}

// Clone returns a copy that shares no slices with c.
func (c Client) Clone() Client {
	c.Programs = slices.Clone(c.Programs)
	if c.Programs == nil {
		c.Programs = []Program{}
	}
	return c
}

// EnrolledIn reports whether the client is a member of the named program.
func (c Client) EnrolledIn(program string) bool {
	return HasProgram(c.Programs, program)
}

// FindClient returns the client with the given id.
func FindClient(clients []Client, id string) (Client, bool) {
	for _, c := range clients {
		if c.ID == id {
			return c, true
		}
	}
	return Client{}, false
}

// FilterClients returns the clients whose name contains term, ignoring case.
// An empty term matches every client.
func FilterClients(clients []Client, term string) []Client {
	needle := strings.ToLower(strings.TrimSpace(term))
	out := make([]Client, 0, len(clients))
	for _, c := range clients {
		if needle == "" || strings.Contains(strings.ToLower(c.Name), needle) {
			out = append(out, c)
		}
	}
	return out
}

// Age is carried as text because the backend sends it either as a JSON
// number or as a string.
type Age string

// UnmarshalJSON accepts a number, a string or null.
func (a *Age) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = Age(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("age must be a number or a string: %w", err)
	}
	*a = Age(n.String())
	return nil
}

// MarshalJSON emits the age as a JSON number when its text already is a
// JSON number literal ("30", "30.0"), so the text survives unchanged. Anything
// else, including "030" and "+5", stays a string.
func (a Age) MarshalJSON() ([]byte, error) {
	if isNumberLiteral(string(a)) {
		return []byte(a), nil
	}
	return json.Marshal(string(a))
}

func isNumberLiteral(s string) bool {
	if s == "" {
		return false
	}
	first, last := s[0], s[len(s)-1]
	if first != '-' && (first < '0' || first > '9') {
		return false
	}
	if last < '0' || last > '9' {
		return false
	}
	return json.Valid([]byte(s))
}

// Draft is a client being filled in before registration.
//
// Its ID is a placeholder only: "CLIENT" followed by a random integer below
// 10000. Collisions are likely at scale, so the id returned by the backend is
// the one that counts.
type Draft struct {
	ID      string
	Name    string
	Age     Age
	Gender  string
	Contact string
}

// NewDraft returns an empty draft with a fresh placeholder id.
func NewDraft() Draft {
	return Draft{ID: NewDraftID()}
}

// NewDraftID generates a non-unique placeholder id.
func NewDraftID() string {
	return fmt.Sprintf("CLIENT%d", rand.IntN(10000))
}

// Validate checks the only required fields, name and age.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if strings.TrimSpace(string(d.Age)) == "" {
		return fmt.Errorf("%w: age is required", ErrValidation)
	}
	return nil
}

// Client converts the draft into the registration payload. Programs are
// always empty: enrollment happens separately.
func (d Draft) Client() Client {
	return Client{
		ID:       d.ID,
		Name:     strings.TrimSpace(d.Name),
		Age:      Age(strings.TrimSpace(string(d.Age))),
		Gender:   d.Gender,
		Contact:  d.Contact,
		Programs: []Program{},
	}
}
