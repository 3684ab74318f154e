// Package ankiwebtest provides a fake AnkiWeb server and encoders for deck-list-info
// responses.
package ankiwebtest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

// Deck is a deck record as AnkiWeb encodes it.
type Deck struct {
	ID       uint64
	Name     string
	Due      uint64
	Learning uint64
	New      uint64
	Children []Deck
	// Extra is appended verbatim after the known fields.
	Extra []byte
}

func (d Deck) Encode() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, d.ID)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, d.Name)
	for _, child := range d.Children {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, child.Encode())
	}
	b = protowire.AppendTag(b, 6, protowire.VarintType)
	b = protowire.AppendVarint(b, d.Due)
	b = protowire.AppendTag(b, 7, protowire.VarintType)
	b = protowire.AppendVarint(b, d.Learning)
	b = protowire.AppendTag(b, 8, protowire.VarintType)
	b = protowire.AppendVarint(b, d.New)
	return append(b, d.Extra...)
}

// DeckList encodes a deck-list-info response holding the given top-level decks.
func DeckList(decks ...Deck) []byte {
	var b []byte
	for _, d := range decks {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, d.Encode())
	}
	return b
}

type Account struct {
	Email    string
	Password string
	// DeckList is the deck-list-info body returned for this account.
	DeckList []byte
	// DeckPage is the HTML served at /decks/, a short client-rendered shell when empty.
	DeckPage string
}

const (
	preflightCookie = "ankiweb_preflight"
	sessionCookie   = "ankiweb"

	shellPage = `<!doctype html><html><head><script type="module" src="/_app/start.js"></script></head><body></body></html>`
)

// Server is a fake AnkiWeb. Its fields may be changed between requests.
type Server struct {
	*httptest.Server

	// LoginStatus overrides the login API status when not zero.
	LoginStatus int
	// DeckListStatus overrides the deck-list-info status when not zero.
	DeckListStatus int

	mu           sync.Mutex
	accounts     map[string]Account
	sessions     map[string]string
	nextSession  int
	logouts      int
	loginHeaders http.Header
	loginBody    []byte
}

// NewServer starts a fake AnkiWeb knowing the given accounts. It is closed when the test
// ends.
func NewServer(t testing.TB, accounts ...Account) *Server {
	s := &Server{
		accounts: map[string]Account{},
		sessions: map[string]string{},
	}
	for _, a := range accounts {
		s.accounts[a.Email] = a
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/account/login", s.loginPage)
	mux.HandleFunc("/svc/account/login", s.login)
	mux.HandleFunc("/svc/decks/deck-list-info", s.deckList)
	mux.HandleFunc("/decks/", s.deckPage)
	mux.HandleFunc("/account/logout", s.logout)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Logouts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logouts
}

// LastLogin returns the headers and body of the last login API request.
func (s *Server) LastLogin() (http.Header, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginHeaders, s.loginBody
}

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: preflightCookie, Value: "1", Path: "/"})
	w.Header().Set("content-type", "text/html")
	fmt.Fprint(w, shellPage)
}

func decodeCredentials(body []byte) (email, password string, ok bool) {
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 || typ != protowire.BytesType {
			return "", "", false
		}
		body = body[n:]
		value, n := protowire.ConsumeBytes(body)
		if n < 0 {
			return "", "", false
		}
		body = body[n:]
		switch num {
		case 1:
			email = string(value)
		case 2:
			password = string(value)
		}
	}
	return email, password, true
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginHeaders = r.Header.Clone()
	s.loginBody = body

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.LoginStatus != 0 {
		w.WriteHeader(s.LoginStatus)
		return
	}
	if _, err := r.Cookie(preflightCookie); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	email, password, ok := decodeCredentials(body)
	account, known := s.accounts[email]
	if !ok || !known || account.Password != password {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	s.nextSession++
	token := fmt.Sprintf("session-%d", s.nextSession)
	s.sessions[token] = email
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: token, Path: "/"})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) account(r *http.Request) (Account, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return Account{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.sessions[cookie.Value]
	if !ok {
		return Account{}, false
	}
	return s.accounts[email], true
}

func (s *Server) deckList(w http.ResponseWriter, r *http.Request) {
	account, ok := s.account(r)
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	s.mu.Lock()
	status := s.DeckListStatus
	s.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("content-type", "application/octet-stream")
	w.Write(account.DeckList)
}

func (s *Server) deckPage(w http.ResponseWriter, r *http.Request) {
	account, ok := s.account(r)
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("content-type", "text/html")
	if account.DeckPage == "" {
		fmt.Fprint(w, shellPage)
		return
	}
	fmt.Fprint(w, account.DeckPage)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logouts++
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		delete(s.sessions, cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusOK)
}
