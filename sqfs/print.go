package sqfs

import (
	"fmt"
	"io"
	"strings"
)

// Print writes the numbered tree, one line per node:
//
//	/ (12, 40755)
//	+- a/ (11, 40755)
//	|  +- f (2)
func (t *Tree) Print(w io.Writer) error {
	return t.print(w, 0, 0)
}

func (t *Tree) print(w io.Writer, level, idx int) error {
	n := &t.Nodes[idx]
	indent := ""
	if level > 1 {
		indent = strings.Repeat("|  ", level-1)
	}
	prefix := ""
	if level > 0 {
		prefix = "+- "
	}

	var err error
	switch n.Mode & sIFMT {
	case sIFDIR:
		if _, err = fmt.Fprintf(w, "%s%s%s/ (%d, %o)\n", indent, prefix, n.Name, n.Inode, n.Mode); err != nil {
			return err
		}
		for _, c := range n.Dir.Children {
			if err := t.print(w, level+1, c); err != nil {
				return err
			}
		}
		return nil
	case sIFLNK:
		_, err = fmt.Fprintf(w, "%s+- %s (%d) -> %s\n", indent, n.Name, n.Inode, n.Target)
	case sIFBLK:
		_, err = fmt.Fprintf(w, "%s+- %s (%d) b %d\n", indent, n.Name, n.Inode, n.Devno)
	case sIFCHR:
		_, err = fmt.Fprintf(w, "%s+- %s (%d) c %d\n", indent, n.Name, n.Inode, n.Devno)
	default:
		_, err = fmt.Fprintf(w, "%s+- %s (%d)\n", indent, n.Name, n.Inode)
	}
	return err
}
