package filestore

// Store is the ordered set of open documents with one active document.
type Store struct {
	documents []*Document
	active    int
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Add appends doc and makes it active. It returns the document's index.
func (s *Store) Add(doc *Document) int {
	s.documents = append(s.documents, doc)
	s.active = len(s.documents) - 1
	return s.active
}

// Index returns the index of the document open at path.
func (s *Store) Index(path string) (int, bool) {
	for i, doc := range s.documents {
		if doc.Path == path {
			return i, true
		}
	}
	return -1, false
}

// Get returns the document open at path.
func (s *Store) Get(path string) (*Document, bool) {
	if i, ok := s.Index(path); ok {
		return s.documents[i], true
	}
	return nil, false
}

// IsOpen reports whether a document is open at path.
func (s *Store) IsOpen(path string) bool {
	_, ok := s.Index(path)
	return ok
}

// ByURI returns the document bound to a language server under uri.
func (s *Store) ByURI(uri string) (*Document, bool) {
	if uri == "" {
		return nil, false
	}
	for _, doc := range s.documents {
		if doc.LSP.URI == uri {
			return doc, true
		}
	}
	return nil, false
}

// Active returns the active document, or nil when none is open.
func (s *Store) Active() *Document {
	if len(s.documents) == 0 {
		return nil
	}
	return s.documents[s.active]
}

// ActiveIndex returns the index of the active document, or -1.
func (s *Store) ActiveIndex() int {
	if len(s.documents) == 0 {
		return -1
	}
	return s.active
}

// Activate makes the document at index i active.
func (s *Store) Activate(i int) error {
	if i < 0 || i >= len(s.documents) {
		return ErrNotOpen
	}
	s.active = i
	return nil
}

// Remove closes the document open at path. The active document stays
// active when another document is removed; removing the active document
// activates its neighbour.
func (s *Store) Remove(path string) error {
	i, ok := s.Index(path)
	if !ok {
		return &PathError{Op: "close", Path: path, Err: ErrNotOpen}
	}
	s.documents = append(s.documents[:i], s.documents[i+1:]...)
	switch {
	case len(s.documents) == 0:
		s.active = 0
	case i < s.active:
		s.active--
	case s.active >= len(s.documents):
		s.active = len(s.documents) - 1
	}
	return nil
}

// OpenDocuments returns all open documents in order.
func (s *Store) OpenDocuments() []*Document {
	return append([]*Document(nil), s.documents...)
}

// DirtyDocuments returns the documents with unsaved changes.
func (s *Store) DirtyDocuments() []*Document {
	var dirty []*Document
	for _, doc := range s.documents {
		if doc.IsDirty() {
			dirty = append(dirty, doc)
		}
	}
	return dirty
}

// Count returns the number of open documents.
func (s *Store) Count() int {
	return len(s.documents)
}
