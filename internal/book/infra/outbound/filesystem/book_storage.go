package filesystem

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	bookDomain "github.com/davicafu/hexabooks/internal/book/domain"
)

// SeedBook es una entrada del fichero de semillas.
type SeedBook struct {
	Title  string   `json:"title"`
	Author string   `json:"author"`
	ISBN   *string  `json:"isbn,omitempty"`
	Pages  *int     `json:"pages,omitempty"`
	Rating *float64 `json:"rating,omitempty"`
}

// Input convierte la entrada en los datos de alta del dominio.
func (s SeedBook) Input() bookDomain.BookInput {
	return bookDomain.BookInput{
		Title:  s.Title,
		Author: s.Author,
		ISBN:   s.ISBN,
		Pages:  s.Pages,
		Rating: s.Rating,
	}
}

// JSONBookStorage lee y escribe un catálogo de semillas en un fichero JSON.
type JSONBookStorage struct {
	filePath string
	mu       sync.Mutex // Mutex para evitar race conditions al leer/escribir el archivo.
}

// NewJSONBookStorage es el constructor.
func NewJSONBookStorage(filePath string) *JSONBookStorage {
	return &JSONBookStorage{
		filePath: filePath,
	}
}

// Save añade un libro al fichero. Si el fichero no existe, lo crea.
func (s *JSONBookStorage) Save(ctx context.Context, book SeedBook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	books, err := s.readAll()
	if err != nil {
		return err
	}

	books = append(books, book)

	data, err := json.MarshalIndent(books, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.filePath, data, 0644)
}

// Load recupera todas las entradas del fichero.
func (s *JSONBookStorage) Load(ctx context.Context) ([]SeedBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readAll()
}

// readAll es un helper interno no concurrente.
func (s *JSONBookStorage) readAll() ([]SeedBook, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		// Si el fichero no existe, devolvemos una lista vacía sin error.
		if os.IsNotExist(err) {
			return []SeedBook{}, nil
		}
		return nil, err
	}

	if len(data) == 0 {
		return []SeedBook{}, nil
	}

	var books []SeedBook
	if err := json.Unmarshal(data, &books); err != nil {
		return nil, err
	}

	return books, nil
}
