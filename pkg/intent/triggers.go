package intent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultMemoryTriggers are the phrases that open a memory write.
var DefaultMemoryTriggers = []string{
	"จำไว้ว่า", "สอนว่า", "remember that", "teach that", "รู้ไหมว่า",
	"ช่วยจำใหม่หน่อย", "ช่วยจำใหม่", "ฝากจำใหม่",
	"ช่วยจำหน่อย", "ฝากจำหน่อย", "จดหน่อย", "จำหน่อยว่า", "จำหน่อย", "ช่วยจำว่า",
	"ช่วยจำ", "ฝากจำ", "จดไว้ว่า", "จดไว้", "note this", "mem", "บันทึก",
}

// DefaultProfileTriggers precede the name the user wants to be called.
var DefaultProfileTriggers = []string{
	"call me", "เรียกฉันว่า", "เรียกผมว่า", "เรียกหนูว่า", "เรียกว่า",
}

// Particles are politeness words stripped from the start of extracted text.
var Particles = []string{"หน่อย", "นะ", "ด้วย", "ค่ะ", "ครับ"}

// Triggers is the pair of trigger tables the router matches against.
type Triggers struct {
	Memory  []string `yaml:"memory"`
	Profile []string `yaml:"profile"`
}

// DefaultTriggers returns copies of the built-in tables.
func DefaultTriggers() Triggers {
	return Triggers{
		Memory:  append([]string(nil), DefaultMemoryTriggers...),
		Profile: append([]string(nil), DefaultProfileTriggers...),
	}
}

// LoadTriggers reads trigger tables from a YAML file. A table missing from
// the file keeps its default.
func LoadTriggers(path string) (Triggers, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Triggers{}, fmt.Errorf("reading triggers: %w", err)
	}
	return ParseTriggers(raw)
}

// ParseTriggers decodes YAML trigger tables.
func ParseTriggers(raw []byte) (Triggers, error) {
	var t Triggers
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Triggers{}, fmt.Errorf("parsing triggers: %w", err)
	}

	def := DefaultTriggers()
	if len(t.Memory) == 0 {
		t.Memory = def.Memory
	}
	if len(t.Profile) == 0 {
		t.Profile = def.Profile
	}
	return t, nil
}
