package session

import (
	"os"

	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Dawoodoz/dsrbuild/internal/planner"
)

// BuildSessionReport summarizes ctx as a structpb.Struct so a caller can
// serialize the shape of a finished session (how many objects were
// planned, each object's paths and checksums, and every linked binary)
// without coupling the report format to a hand-maintained schema. It does
// not record whether an object was reused or compiled.
func BuildSessionReport(ctx *planner.SessionContext) (*structpb.Struct, error) {
	objects := make([]interface{}, 0, len(ctx.SourceObjects))
	for _, obj := range ctx.SourceObjects {
		objects = append(objects, map[string]interface{}{
			"source_path":       obj.SourcePath,
			"object_path":       obj.ObjectPath,
			"identity_checksum": planner.FormatChecksum(obj.IdentityChecksum),
			"combined_checksum": planner.FormatChecksum(obj.CombinedChecksum),
			"compiler":          obj.CompilerName,
		})
	}
	binaries := make([]interface{}, 0, len(ctx.LinkerSteps))
	for _, step := range ctx.LinkerSteps {
		binaries = append(binaries, map[string]interface{}{
			"binary_name":    step.BinaryName,
			"object_count":   float64(len(step.SourceObjectIndices)),
			"execute_result": step.ExecuteResult,
		})
	}
	return structpb.NewStruct(map[string]interface{}{
		"temp_path":     ctx.TempPath,
		"object_count":  float64(len(ctx.SourceObjects)),
		"binary_count":  float64(len(ctx.LinkerSteps)),
		"objects":       objects,
		"binaries":      binaries,
	})
}

// WriteSessionReport renders report in protobuf text format and writes it
// to path.
func WriteSessionReport(path string, report *structpb.Struct) error {
	text, err := prototext.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(report)
	if err != nil {
		return err
	}
	return os.WriteFile(path, text, 0o644)
}
