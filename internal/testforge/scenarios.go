package testforge

// Doc scenario locations.
const (
	DocConfigRepo = "cfg/build"
	DocNodesPath  = "nodes.json"
	DocTreePath   = "content.json"
)

// DocScenario returns a forge holding two nodes. toen-mastercourse lists two
// lectures; non-existence has no content tree.
func DocScenario() *TestForge {
	return NewTestForge().
		AddJSON(DocConfigRepo, DocNodesPath, []map[string]string{
			{"key": "toen-mastercourse", "repo": "jakebian/OTIM-toen-mastercourse"},
			{"key": "non-existence", "repo": "jakebian/non-existence"},
		}).
		AddFile("jakebian/OTIM-toen-mastercourse", DocTreePath, `
- children:
    - path: /chapters/lecture1.tex
    - path: /chapters/lecture2-3.tex
`)
}
