package hostsfile

import (
	"strings"

	"go.uber.org/zap"
)

// DefaultLoopback is the address every managed entry points at.
const DefaultLoopback = "127.0.0.1"

// Store manages the block of blocking entries inside a shared hosts file.
// Every call does a fresh read-parse cycle, and Add/Remove rewrite the whole
// file. Store holds no lock; concurrent callers must go through LockedStore
// or serialize access themselves.
type Store struct {
	path     string
	loopback string
	fs       Persister
	logger   *zap.Logger
}

// NewStore creates a Store for the file at path.
// A nil persister defaults to an atomic OSPersister.
func NewStore(path string, fs Persister, logger *zap.Logger) *Store {
	if fs == nil {
		fs = &OSPersister{Atomic: true}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:     path,
		loopback: DefaultLoopback,
		fs:       fs,
		logger:   logger,
	}
}

// Path returns the managed file path.
func (s *Store) Path() string {
	return s.path
}

// EntryLine builds the canonical entry for domain.
func (s *Store) EntryLine(domain string) string {
	return s.loopback + "\t" + domain
}

// Entries returns the raw entry lines of the managed block.
func (s *Store) Entries() ([]string, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Entries, nil
}

// List returns the blocked domains in block order.
// The domain is the last whitespace-separated field of each entry.
func (s *Store) List() ([]string, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	domains := make([]string, 0, len(doc.Entries))
	for _, entry := range doc.Entries {
		fields := strings.Fields(entry)
		if len(fields) == 0 {
			continue
		}
		domains = append(domains, fields[len(fields)-1])
	}
	return domains, nil
}

// Add appends the entry for domain. It reports false without writing when
// an identical entry already exists.
func (s *Store) Add(domain string) (bool, error) {
	if domain == "" {
		return false, ErrEmptyDomain
	}

	text, doc, err := s.read()
	if err != nil {
		return false, err
	}

	line := s.EntryLine(domain)
	if doc.Contains(line) {
		s.logger.Debug("Domain already blocked", zap.String("domain", domain))
		return false, nil
	}

	if err := checkLoneMarker(text); err != nil {
		s.logger.Error("Refusing to add a second managed block",
			zap.String("path", s.path),
			zap.Error(err))
		return false, err
	}

	doc.Entries = append(doc.Entries, line)
	if err := s.save(doc); err != nil {
		return false, err
	}

	s.logger.Info("Domain blocked",
		zap.String("domain", domain),
		zap.String("path", s.path),
		zap.Int("entries", len(doc.Entries)))
	return true, nil
}

// Remove drops the entry for domain. It reports whether an entry was removed;
// an absent domain is not an error and leaves the file untouched.
func (s *Store) Remove(domain string) (bool, error) {
	if domain == "" {
		return false, ErrEmptyDomain
	}

	doc, err := s.load()
	if err != nil {
		return false, err
	}

	line := s.EntryLine(domain)
	kept := doc.Entries[:0:0]
	for _, entry := range doc.Entries {
		if entry == line {
			continue
		}
		kept = append(kept, entry)
	}

	if len(kept) == len(doc.Entries) {
		s.logger.Debug("Domain was not blocked", zap.String("domain", domain))
		return false, nil
	}

	doc.Entries = kept
	if err := s.save(doc); err != nil {
		return false, err
	}

	s.logger.Info("Domain unblocked",
		zap.String("domain", domain),
		zap.String("path", s.path),
		zap.Int("entries", len(doc.Entries)))
	return true, nil
}

func (s *Store) load() (Document, error) {
	_, doc, err := s.read()
	return doc, err
}

// read returns the raw file text along with its parsed document.
func (s *Store) read() (string, Document, error) {
	data, err := s.fs.ReadFile(s.path)
	if err != nil {
		s.logger.Error("Failed to read hosts file",
			zap.String("path", s.path),
			zap.Error(err))
		return "", Document{}, &IOError{Op: "read", Path: s.path, Err: err}
	}

	text := string(data)
	doc, err := Parse(text)
	if err != nil {
		s.logger.Error("Hosts file has a malformed managed block",
			zap.String("path", s.path),
			zap.Error(err))
		return "", Document{}, err
	}
	return text, doc, nil
}

func (s *Store) save(doc Document) error {
	if err := s.fs.WriteFile(s.path, []byte(Serialize(doc))); err != nil {
		s.logger.Error("Failed to write hosts file",
			zap.String("path", s.path),
			zap.Error(err))
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}
