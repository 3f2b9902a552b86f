package api

// Operation is a request kind, named by the body's "function" field.
type Operation int

const (
	OpUnknown Operation = iota
	OpQueryExecute
	OpDocumentSubmit
	OpDocumentGenerate
	OpSQLFileExists
	OpSQLFileLoad
	OpSQLFileSave
	OpLocalLibraryFilesGet
	OpWorkbookLoad
	OpWorkbooksGet
	OpRemoteLibraryFilesGet
	OpRemoteLibraryFileLoad
)

var operationNames = map[Operation]string{
	OpQueryExecute:          "queryExecute",
	OpDocumentSubmit:        "documentSubmit",
	OpDocumentGenerate:      "documentGenerate",
	OpSQLFileExists:         "sqlFileExists",
	OpSQLFileLoad:           "sqlFileLoad",
	OpSQLFileSave:           "sqlFileSave",
	OpLocalLibraryFilesGet:  "localLibraryFilesGet",
	OpWorkbookLoad:          "workbookLoad",
	OpWorkbooksGet:          "workbooksGet",
	OpRemoteLibraryFilesGet: "remoteLibraryFilesGet",
	OpRemoteLibraryFileLoad: "remoteLibraryFileLoad",
}

var operationsByName = func() map[string]Operation {
	m := make(map[string]Operation, len(operationNames))
	for op, name := range operationNames {
		m[name] = op
	}
	return m
}()

func (op Operation) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return "unknown"
}

// ParseOperation maps a function name to its Operation. Names are case
// sensitive.
func ParseOperation(name string) (Operation, bool) {
	op, ok := operationsByName[name]
	return op, ok
}

// Operations returns every operation name accepted on the POST channel.
func Operations() []string {
	var names []string
	for op := OpQueryExecute; op <= OpRemoteLibraryFileLoad; op++ {
		if op == OpDocumentGenerate {
			continue
		}
		names = append(names, op.String())
	}
	return names
}
