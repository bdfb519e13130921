// Package catalog provides the read-only list of neuropsychological instruments.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Instrument is a cataloged neuropsychological test
type Instrument struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Domain      string `yaml:"domain" json:"domain"`
	Description string `yaml:"description" json:"description"`
}

// Catalog is an ordered, immutable set of instruments
type Catalog struct {
	instruments []Instrument
	index       map[string]int
}

// ErrEmptyCatalog is returned when a catalog file lists no instruments
var ErrEmptyCatalog = errors.New("instrument catalog empty")

type catalogFile struct {
	Instruments []Instrument `yaml:"instruments"`
}

// New builds a catalog, preserving order. Ids must be unique and non-empty.
func New(instruments []Instrument) (*Catalog, error) {
	if len(instruments) == 0 {
		return nil, ErrEmptyCatalog
	}
	c := &Catalog{
		instruments: make([]Instrument, len(instruments)),
		index:       make(map[string]int, len(instruments)),
	}
	for i, inst := range instruments {
		if inst.ID == "" {
			return nil, fmt.Errorf("instrument at position %d has no id", i)
		}
		if _, dup := c.index[inst.ID]; dup {
			return nil, fmt.Errorf("duplicate instrument id %q", inst.ID)
		}
		c.instruments[i] = inst
		c.index[inst.ID] = i
	}
	return c, nil
}

// Load reads a YAML catalog file. An empty path yields the default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(f.Instruments)
}

// Instruments returns a copy of the instruments in catalog order
func (c *Catalog) Instruments() []Instrument {
	out := make([]Instrument, len(c.instruments))
	copy(out, c.instruments)
	return out
}

// Lookup finds an instrument by id
func (c *Catalog) Lookup(id string) (Instrument, bool) {
	i, ok := c.index[id]
	if !ok {
		return Instrument{}, false
	}
	return c.instruments[i], true
}

// Len returns the number of instruments
func (c *Catalog) Len() int { return len(c.instruments) }

// Default returns the built-in instrument catalog
func Default() *Catalog {
	c, err := New(defaultInstruments)
	if err != nil {
		panic(err)
	}
	return c
}

var defaultInstruments = []Instrument{
	{ID: "rey", Name: "Figuras Complexas de Rey", Domain: "Memória Visual / Visuoconstrução", Description: "Avalia percepção visual e memória imediata/tardia."},
	{ID: "stroop-ad", Name: "Stroop Test (Adulto)", Domain: "Funções Executivas", Description: "Avalia atenção seletiva, controle inibitório e flexibilidade cognitiva."},
	{ID: "tol", Name: "Torre de Londres", Domain: "Funções Executivas", Description: "Avalia planejamento e resolução de problemas."},
	{ID: "vineland3", Name: "Vineland-3", Domain: "Comportamento Adaptativo", Description: "Escalas de Comportamento Adaptativo para avaliação de autonomia."},
	{ID: "wasi", Name: "WASI", Domain: "Inteligência", Description: "Escala de Inteligência Wechsler Abreviada."},
	{ID: "wais", Name: "WAIS-IV", Domain: "Inteligência", Description: "Escala de Inteligência Wechsler para Adultos."},
	{ID: "srs2", Name: "SRS-2", Domain: "Responsividade Social", Description: "Escala de Responsividade Social para triagem de TEA."},
	{ID: "etdah-ad", Name: "ETDAH-AD (Autoinforme)", Domain: "Atenção / Hiperatividade", Description: "Escala de TDAH para adultos."},
	{ID: "etdah-pais", Name: "ETDAH (Pais)", Domain: "Atenção / Hiperatividade", Description: "Escala de TDAH preenchida pelos pais."},
	{ID: "etdah-criad", Name: "ETDAH (Criadores/Professores)", Domain: "Atenção / Hiperatividade", Description: "Escala de TDAH preenchida por educadores."},
	{ID: "fdt", Name: "FDT (Teste dos Cinco Dígitos)", Domain: "Velocidade de Processamento", Description: "Avalia velocidade cognitiva e flexibilidade."},
}
