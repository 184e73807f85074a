package fhir

// Parameters is the FHIR Parameters resource returned by operations such
// as CodeSystem/$lookup.
type Parameters struct {
	ResourceType string      `json:"resourceType"`
	Parameter    []Parameter `json:"parameter"`
}

// Parameter is one named value, or a group of parts.
type Parameter struct {
	Name         string      `json:"name"`
	ValueString  string      `json:"valueString,omitempty"`
	ValueCode    string      `json:"valueCode,omitempty"`
	ValueBoolean *bool       `json:"valueBoolean,omitempty"`
	ValueCoding  *Coding     `json:"valueCoding,omitempty"`
	Part         []Parameter `json:"part,omitempty"`
}

func NewParameters() *Parameters {
	return &Parameters{ResourceType: "Parameters", Parameter: []Parameter{}}
}

// AddString appends a valueString parameter. Empty values are skipped.
func (p *Parameters) AddString(name, value string) *Parameters {
	if value != "" {
		p.Parameter = append(p.Parameter, Parameter{Name: name, ValueString: value})
	}
	return p
}

func (p *Parameters) AddBoolean(name string, value bool) *Parameters {
	v := value
	p.Parameter = append(p.Parameter, Parameter{Name: name, ValueBoolean: &v})
	return p
}

func (p *Parameters) AddParts(name string, parts ...Parameter) *Parameters {
	p.Parameter = append(p.Parameter, Parameter{Name: name, Part: parts})
	return p
}

// Get returns the first parameter with the given name.
func (p *Parameters) Get(name string) (Parameter, bool) {
	for _, param := range p.Parameter {
		if param.Name == name {
			return param, true
		}
	}
	return Parameter{}, false
}
