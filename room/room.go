package room

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/isdmx/coderoom/config"
)

// Language identifies the editor language of a room
type Language string

// Supported languages
const (
	LanguageC      Language = "c"
	LanguageCPP    Language = "cpp"
	LanguagePython Language = "python"

	DefaultLanguage = LanguageC
)

// Languages lists the supported languages in display order
var Languages = []Language{LanguageC, LanguageCPP, LanguagePython}

// Default boilerplate per language
const (
	BoilerplateC      = "#include <stdio.h>\nint main() {\n    printf(\"Hello from C!\\n\");\n    return 0;\n}\n"
	BoilerplateCPP    = "#include <iostream>\nusing namespace std;\nint main() {\n    cout << \"Hello from C++!\\n\";\n    return 0;\n}\n"
	BoilerplatePython = "# Start coding here...\nprint(\"Hello from Python!\")\n"
)

var (
	// ErrRoomNotFound is returned when a room does not exist
	ErrRoomNotFound = errors.New("room not found")

	// ErrUnsupportedLanguage is returned for a language outside Languages
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// ParseLanguage validates a language tag
func ParseLanguage(s string) (Language, error) {
	lang := Language(s)
	if !lo.Contains(Languages, lang) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, s)
	}
	return lang, nil
}

// Boilerplates maps each language to the source text a fresh editor starts with
type Boilerplates map[Language]string

// DefaultBoilerplates returns the built-in boilerplate of every language
func DefaultBoilerplates() Boilerplates {
	return Boilerplates{
		LanguageC:      BoilerplateC,
		LanguageCPP:    BoilerplateCPP,
		LanguagePython: BoilerplatePython,
	}
}

// For returns the boilerplate of lang, falling back to the built-in text
func (b Boilerplates) For(lang Language) string {
	if text, ok := b[lang]; ok && text != "" {
		return text
	}
	return DefaultBoilerplates()[lang]
}

// State is a copy of a room's shared editor state
type State struct {
	Language Language
	Source   string
}

// Summary describes a room for operator surfaces
type Summary struct {
	ID           string   `json:"id"`
	Language     Language `json:"language"`
	Participants int      `json:"participants"`
}

type entry struct {
	state        State
	participants map[string]struct{}
}

// Store holds the authoritative state of every live room.
// All mutations are whole-value overwrites; the last write wins.
type Store struct {
	logger       *zap.Logger
	boilerplates Boilerplates

	mu    sync.RWMutex
	rooms map[string]*entry
}

// NewStore creates an empty Store
func NewStore(logger *zap.Logger, boilerplates Boilerplates) *Store {
	if boilerplates == nil {
		boilerplates = DefaultBoilerplates()
	}
	return &Store{
		logger:       logger,
		boilerplates: boilerplates,
		rooms:        make(map[string]*entry),
	}
}

// Boilerplate returns the configured boilerplate of lang
func (s *Store) Boilerplate(lang Language) string {
	return s.boilerplates.For(lang)
}

// Ensure returns the room's state, creating the room with the default
// language and its boilerplate if it does not exist yet.
func (s *Store) Ensure(roomID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(roomID).state
}

func (s *Store) ensureLocked(roomID string) *entry {
	if e, ok := s.rooms[roomID]; ok {
		return e
	}
	e := &entry{
		state: State{
			Language: DefaultLanguage,
			Source:   s.boilerplates.For(DefaultLanguage),
		},
		participants: make(map[string]struct{}),
	}
	s.rooms[roomID] = e
	s.logger.Debug("room created", zap.String("room_id", roomID))
	return e
}

// Get returns the room's current state
func (s *Store) Get(roomID string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.rooms[roomID]
	if !ok {
		return State{}, ErrRoomNotFound
	}
	return e.state, nil
}

// SetState overwrites language and source together
func (s *Store) SetState(roomID string, lang Language, source string) error {
	if _, err := ParseLanguage(string(lang)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureLocked(roomID).state = State{Language: lang, Source: source}
	return nil
}

// SetSource overwrites the source text only
func (s *Store) SetSource(roomID, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	e.state.Source = source
	return nil
}

// SetLanguage switches the room's language and resets its source to the
// language's boilerplate, discarding in-flight edits.
func (s *Store) SetLanguage(roomID string, lang Language) (State, error) {
	if _, err := ParseLanguage(string(lang)); err != nil {
		return State{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.rooms[roomID]
	if !ok {
		return State{}, ErrRoomNotFound
	}
	e.state = State{Language: lang, Source: s.boilerplates.For(lang)}
	return e.state, nil
}

// Join records participantID as a member of the room, creating it if needed
func (s *Store) Join(roomID, participantID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.ensureLocked(roomID)
	e.participants[participantID] = struct{}{}
	return e.state
}

// Leave removes participantID from the room's members
func (s *Store) Leave(roomID, participantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.rooms[roomID]; ok {
		delete(e.participants, participantID)
	}
}

// DestroyIfEmpty deletes the room when no participant remains and reports
// whether it did.
func (s *Store) DestroyIfEmpty(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.rooms[roomID]
	if !ok || len(e.participants) > 0 {
		return false
	}
	delete(s.rooms, roomID)
	s.logger.Debug("room destroyed", zap.String("room_id", roomID))
	return true
}

// Participants returns the number of members of the room
func (s *Store) Participants(roomID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.rooms[roomID]; ok {
		return len(e.participants)
	}
	return 0
}

// List returns a summary of every room ordered by ID
func (s *Store) List() []Summary {
	s.mu.RLock()
	summaries := lo.MapToSlice(s.rooms, func(id string, e *entry) Summary {
		return Summary{ID: id, Language: e.state.Language, Participants: len(e.participants)}
	})
	s.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries
}

// Len returns the number of live rooms
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// NewStoreFromConfig creates a Store whose boilerplates honour the
// languages section of the configuration
func NewStoreFromConfig(logger *zap.Logger, cfg *config.Config) *Store {
	boilerplates := DefaultBoilerplates()
	for _, lang := range Languages {
		if lc, ok := cfg.Languages[string(lang)]; ok && lc.Boilerplate != "" {
			boilerplates[lang] = lc.Boilerplate
		}
	}
	return NewStore(logger.Named("room"), boilerplates)
}
