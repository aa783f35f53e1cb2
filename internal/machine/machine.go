// Package machine implements the mutable configuration state threaded
// through interpretation of a .DsrProj script: variables, accumulated
// compiler/linker flags, frameworks, crawl origins, and the nested
// child-project requests a script can queue up.
package machine

import (
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// Flag is a single script variable. Variables created from command-line
// input arguments or propagated from a parent project are marked
// Inherited so a child project receives them too.
type Flag struct {
	Key       string
	Value     string
	Inherited bool
}

// ChildProject is a build request queued by a "build" command: another
// project path together with the settings it should inherit plus
// whatever arguments followed it on the same line.
type ChildProject struct {
	Path     string
	Settings *Machine
}

// SourceFileProject is a build request queued by a "projects" command: a
// single source file treated as its own one-file project.
type SourceFileProject struct {
	Path     string
	Settings *Machine
}

// Machine holds everything a script accumulates while it runs: variables,
// flag lists bound for the compiler and linker, crawl origins to search
// for source code, and any child projects it asked to have built.
type Machine struct {
	ProjectName string

	Variables []Flag

	CompilerFlags []string
	LinkerFlags   []string
	Frameworks    []string
	CrawlOrigins  []string

	ChildProjects      []ChildProject
	SourceFileProjects []SourceFileProject

	// CurrentStackDepth is the number of if scopes currently open, counted
	// across the root script and imported ones. ActiveStackDepth tracks how
	// deep the currently-true branch goes; when it falls behind
	// CurrentStackDepth, interpretation is in a false branch and commands
	// other than if/end-if are ignored.
	CurrentStackDepth int64
	ActiveStackDepth  int64
}

// New returns an empty Machine for the named project.
func New(projectName string) *Machine {
	return &Machine{ProjectName: projectName}
}

// FindFlag returns the index of key in m.Variables (case-insensitive), or
// -1 if it is not present.
func (m *Machine) FindFlag(key string) int {
	for i := range m.Variables {
		if strings.EqualFold(m.Variables[i].Key, key) {
			return i
		}
	}
	return -1
}

// GetFlag returns the value of key, or def if it is not assigned.
func (m *Machine) GetFlag(key, def string) string {
	i := m.FindFlag(key)
	if i == -1 {
		return def
	}
	return m.Variables[i].Value
}

// GetFlagAsInteger returns the value of key interpreted as an integer, def
// if it is not assigned, or 0 if assigned to something non-numeric.
func (m *Machine) GetFlagAsInteger(key string, def int64) int64 {
	i := m.FindFlag(key)
	if i == -1 {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(m.Variables[i].Value), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// AssignValue sets key to value, creating the variable if it does not
// already exist. An inherited assignment marks the variable as inherited
// even if it already existed as a local one, since an inherited argument
// should still propagate further down the chain.
func (m *Machine) AssignValue(key, value string, inherited bool) {
	i := m.FindFlag(key)
	if i == -1 {
		m.Variables = append(m.Variables, Flag{Key: strings.ToUpper(key), Value: value, Inherited: inherited})
		return
	}
	m.Variables[i].Value = value
	if inherited {
		m.Variables[i].Inherited = true
	}
}

func uniqueStrings(list []string) bool {
	for i := 0; i < len(list)-1; i++ {
		for j := i + 1; j < len(list); j++ {
			if list[i] == list[j] {
				return false
			}
		}
	}
	return true
}

func uniqueFlags(list []Flag) bool {
	for i := 0; i < len(list)-1; i++ {
		for j := i + 1; j < len(list); j++ {
			if strings.EqualFold(list[i].Key, list[j].Key) {
				return false
			}
		}
	}
	return true
}

// Validate checks the invariant that compiler flags, linker flags,
// frameworks, and variable keys each contain no duplicates. eventDescription
// is folded into the returned error to say what was happening when the
// check failed.
func (m *Machine) Validate(eventDescription string) error {
	if !uniqueStrings(m.CompilerFlags) {
		return xerrors.Errorf("found duplicate compiler flags %s", eventDescription)
	}
	if !uniqueStrings(m.LinkerFlags) {
		return xerrors.Errorf("found duplicate linker flags %s", eventDescription)
	}
	if !uniqueStrings(m.Frameworks) {
		return xerrors.Errorf("found duplicate frameworks %s", eventDescription)
	}
	if !uniqueFlags(m.Variables) {
		return xerrors.Errorf("found duplicate variables %s", eventDescription)
	}
	return nil
}

// Inherit copies only the variables parent marked as inherited into child,
// used when a project script starts running under settings passed down
// from whatever built it (command-line arguments or a "build" command).
func Inherit(child, parent *Machine) {
	for _, v := range parent.Variables {
		if v.Inherited {
			child.Variables = append(child.Variables, v)
		}
	}
}

// Clone copies every variable, flag, and crawl origin from parent into
// child, used for the one-file-project path where there is no project
// script to read settings from and the shared settings must be taken as
// they are. Frameworks from parent are appended to child.Frameworks, not
// child.LinkerFlags, keeping the "-framework X" argument pairing that the
// framework command relies on intact.
func Clone(child, parent *Machine) {
	child.Variables = append(child.Variables, parent.Variables...)
	child.CompilerFlags = append(child.CompilerFlags, parent.CompilerFlags...)
	child.LinkerFlags = append(child.LinkerFlags, parent.LinkerFlags...)
	child.Frameworks = append(child.Frameworks, parent.Frameworks...)
	child.CrawlOrigins = append(child.CrawlOrigins, parent.CrawlOrigins...)
}

// ArgumentsToSettings interprets each argument as either a bare identifier
// (assigned to "1") or a key=value pair, marking every resulting variable
// as inherited so it propagates to any project built from these settings.
func ArgumentsToSettings(settings *Machine, arguments []string) {
	for _, argument := range arguments {
		eq := strings.IndexByte(argument, '=')
		if eq == -1 {
			settings.AssignValue(argument, "1", true)
		} else {
			key := strings.TrimSpace(argument[:eq])
			value := strings.TrimSpace(argument[eq+1:])
			settings.AssignValue(key, value, true)
		}
	}
}
