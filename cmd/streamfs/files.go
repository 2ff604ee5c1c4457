package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/streamfs/internal/streamfs"
)

var lsCmd = &cobra.Command{
	Use:   "ls [uri]",
	Short: "List a directory",
	Example: `  streamfs ls /octocat
  streamfs ls "/octocat/My Post"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

var statCmd = &cobra.Command{
	Use:   "stat <uri>",
	Short: "Describe a file or directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runStat,
}

var catCmd = &cobra.Command{
	Use:   "cat <uri>",
	Short: "Print a file to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runCat,
}

var putCmd = &cobra.Command{
	Use:   "put <uri> [local-file]",
	Short: "Write a file from a local file or stdin",
	Example: `  streamfs put "/octocat/My Post/my-post.draft.md" post.md
  cat diagram.png | streamfs put "/octocat/My Post/diagram.png"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPut,
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <uri>",
	Short: "Create a draft Input",
	Args:  cobra.ExactArgs(1),
	RunE:  runMkdir,
}

var mvCmd = &cobra.Command{
	Use:   "mv <from> <to>",
	Short: "Rename an Input or attachment",
	Args:  cobra.ExactArgs(2),
	RunE:  runMv,
}

var rmCmd = &cobra.Command{
	Use:   "rm <uri>",
	Short: "Delete an Input or attachment",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

var cpCmd = &cobra.Command{
	Use:   "cp <source> <target-url>",
	Short: "Copy a file to the image host",
	Example: `  streamfs cp "/octocat/A/pic.png" "streamfs://images/octocat/B/pic.png"`,
	Args:    cobra.ExactArgs(2),
	RunE:    runCp,
}

var (
	putCreate    bool
	putOverwrite bool
	mvOverwrite  bool
)

func init() {
	rootCmd.AddCommand(lsCmd, statCmd, catCmd, putCmd, mkdirCmd, mvCmd, rmCmd, cpCmd)

	putCmd.Flags().BoolVar(&putCreate, "create", true,
		"Create the file if it does not exist")
	putCmd.Flags().BoolVar(&putOverwrite, "overwrite", true,
		"Replace the file if it exists")
	mvCmd.Flags().BoolVar(&mvOverwrite, "overwrite", false,
		"Replace the destination if it exists")
}

func runLs(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	c, user, err := openSession(ctx)
	if err != nil {
		return failure(err, "List failed")
	}
	defer c.Close()

	uri := user.URI()
	if len(args) == 1 {
		uri = args[0]
	}
	entries, err := c.FS.ReadDirectory(ctx, uri)
	if err != nil {
		return failure(err, "List %s failed", uri)
	}

	if jsonOutput {
		out := make([]map[string]string, 0, len(entries))
		for _, e := range entries {
			out = append(out, map[string]string{"name": e.Name, "type": e.Type.String()})
		}
		printJSON(out)
		return nil
	}

	for _, e := range entries {
		if e.Type == streamfs.FileTypeDirectory {
			infoColor.Println(e.Name + "/")
		} else {
			fmt.Println(e.Name)
		}
	}
	return nil
}

func runStat(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	c, _, err := openSession(ctx)
	if err != nil {
		return failure(err, "Stat failed")
	}
	defer c.Close()

	st, err := c.FS.Stat(ctx, args[0])
	if err != nil {
		return failure(err, "Stat %s failed", args[0])
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"uri":   streamfs.CleanURI(args[0]),
			"type":  st.Type.String(),
			"kind":  st.Kind.String(),
			"size":  st.Size,
			"ctime": st.Ctime,
			"mtime": st.Mtime,
		})
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "URI:\t%s\n", streamfs.CleanURI(args[0]))
	fmt.Fprintf(w, "Type:\t%s (%s)\n", st.Type, st.Kind)
	fmt.Fprintf(w, "Size:\t%s\n", formatBytes(st.Size))
	fmt.Fprintf(w, "Created:\t%s\n", st.Ctime.Format(time.RFC3339))
	fmt.Fprintf(w, "Modified:\t%s\n", st.Mtime.Format(time.RFC3339))
	return w.Flush()
}

func runCat(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	c, _, err := openSession(ctx)
	if err != nil {
		return failure(err, "Read failed")
	}
	defer c.Close()

	data, err := c.FS.ReadFile(ctx, args[0])
	if err != nil {
		return failure(err, "Read %s failed", args[0])
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runPut(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	var (
		data []byte
		err  error
	)
	if len(args) == 2 && args[1] != "-" {
		data, err = os.ReadFile(args[1])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return failure(err, "Read input failed")
	}

	c, _, err := openSession(ctx)
	if err != nil {
		return failure(err, "Write failed")
	}
	defer c.Close()

	opts := streamfs.WriteOptions{Create: putCreate, Overwrite: putOverwrite}
	if err := c.FS.WriteFile(ctx, args[0], data, opts); err != nil {
		return failure(err, "Write %s failed", args[0])
	}
	result(map[string]interface{}{
		"uri":  streamfs.CleanURI(args[0]),
		"size": len(data),
	}, "Wrote %s to %s", formatBytes(int64(len(data))), args[0])
	return nil
}

func runMkdir(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	c, _, err := openSession(ctx)
	if err != nil {
		return failure(err, "Create failed")
	}
	defer c.Close()

	if err := c.FS.CreateDirectory(ctx, args[0]); err != nil {
		return failure(err, "Create %s failed", args[0])
	}
	result(map[string]interface{}{"uri": streamfs.CleanURI(args[0])}, "Created %s", args[0])
	return nil
}

func runMv(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	c, _, err := openSession(ctx)
	if err != nil {
		return failure(err, "Rename failed")
	}
	defer c.Close()

	if err := c.FS.Rename(ctx, args[0], args[1], mvOverwrite); err != nil {
		return failure(err, "Rename %s failed", args[0])
	}
	result(map[string]interface{}{
		"from": streamfs.CleanURI(args[0]),
		"to":   streamfs.CleanURI(args[1]),
	}, "Renamed %s to %s", args[0], args[1])
	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	c, _, err := openSession(ctx)
	if err != nil {
		return failure(err, "Delete failed")
	}
	defer c.Close()

	before, err := c.FS.Stat(ctx, args[0])
	if err != nil {
		return failure(err, "Delete %s failed", args[0])
	}
	if err := c.FS.Delete(ctx, args[0]); err != nil {
		return failure(err, "Delete %s failed", args[0])
	}

	// A declined confirmation leaves the node in place.
	if _, err := c.FS.Stat(ctx, args[0]); err == nil {
		if !jsonOutput {
			printWarning("Kept %s", args[0])
		}
		return nil
	}
	result(map[string]interface{}{
		"uri":  streamfs.CleanURI(args[0]),
		"kind": before.Kind.String(),
	}, "Deleted %s", args[0])
	return nil
}

func runCp(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	c, _, err := openSession(ctx)
	if err != nil {
		return failure(err, "Copy failed")
	}
	defer c.Close()

	if err := c.FS.Copy(ctx, args[0], args[1]); err != nil {
		return failure(err, "Copy %s failed", args[0])
	}
	result(map[string]interface{}{
		"source": streamfs.CleanURI(args[0]),
		"target": args[1],
	}, "Copied %s to %s", args[0], args[1])
	return nil
}
