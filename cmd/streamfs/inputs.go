package main

import (
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/streamfs/internal/models"
)

var publishCmd = &cobra.Command{
	Use:   "publish <input-uri>",
	Short: "Publish an Input",
	Long: `Publish marks an Input published. Its content file is renamed to
<slug>.published.md and becomes read-only.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setStatus(args[0], models.StatusPublished)
	},
}

var unpublishCmd = &cobra.Command{
	Use:   "unpublish <input-uri>",
	Short: "Turn a published Input back into a draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setStatus(args[0], models.StatusDraft)
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <input-uri> <file>...",
	Short: "Attach local images to an Input",
	Example: `  streamfs upload "/octocat/My Post" diagram.png photo.jpg`,
	Args:    cobra.MinimumNArgs(2),
	RunE:    runUpload,
}

func init() {
	rootCmd.AddCommand(publishCmd, unpublishCmd, uploadCmd)
}

func setStatus(uri string, st models.Status) error {
	ctx, cancel := signalContext()
	defer cancel()

	c, _, err := openSession(ctx)
	if err != nil {
		return failure(err, "Status change failed")
	}
	defer c.Close()

	if err := c.SetStatus(ctx, uri, st); err != nil {
		return failure(err, "Status change of %s failed", uri)
	}
	result(map[string]interface{}{
		"uri":    uri,
		"status": st.String(),
	}, "%s is now %s", uri, st)
	return nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	c, _, err := openSession(ctx)
	if err != nil {
		return failure(err, "Upload failed")
	}
	defer c.Close()

	added, err := c.UploadPaths(ctx, args[0], args[1:])

	uris := make([]string, 0, len(added))
	for _, a := range added {
		uris = append(uris, a.URI())
	}
	if jsonOutput {
		out := map[string]interface{}{
			"success":  err == nil,
			"uploaded": uris,
		}
		if err != nil {
			out["error"] = err.Error()
		}
		printJSON(out)
		return err
	}

	for _, u := range uris {
		printSuccess("Uploaded %s", u)
	}
	if err != nil {
		printError("Some files were not uploaded: %v", err)
	}
	return err
}
