package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/xlog-social/xlog/domain"
)

func postCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Manage posts",
	}
	cmd.AddCommand(postAddCmd(opts))
	return cmd
}

func postAddCmd(opts *rootOptions) *cobra.Command {
	var (
		title   string
		content string
		summary string
		banner  string
		tags    []string
		publish bool
	)

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Write a post, optionally publishing it right away",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title is required")
			}
			ctx := cmd.Context()
			return withApp(ctx, opts, func(a *app) error {
				acc, err := a.store.ReadAccountByUsername(ctx, args[0])
				if err != nil {
					return err
				}

				now := time.Now()
				post := &domain.Post{
					Id:          uuid.New(),
					AuthorId:    acc.Id,
					Title:       title,
					ContentHtml: content,
					Summary:     summary,
					BannerURL:   banner,
					Hashtags:    tags,
					UpdatedAt:   now,
				}
				if publish {
					post.PublishedAt = &now
				}
				if err := a.store.CreatePost(ctx, post); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created post %s\n", post.Id)

				if !publish {
					return nil
				}
				n, err := a.publisher().PublishPost(ctx, post.Id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %d deliveries\n", n)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "post title")
	cmd.Flags().StringVar(&content, "content", "", "post body as HTML")
	cmd.Flags().StringVar(&summary, "summary", "", "short summary")
	cmd.Flags().StringVar(&banner, "banner", "", "banner image URL")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "hashtag without the leading #, repeatable")
	cmd.Flags().BoolVar(&publish, "publish", false, "publish and federate immediately")
	return cmd
}

func publishCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <post-id>",
		Short: "Publish a draft and queue a Create for every follower",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			postId, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid post id %q: %w", args[0], err)
			}
			ctx := cmd.Context()
			return withApp(ctx, opts, func(a *app) error {
				ok, err := a.store.PublishPost(ctx, postId, time.Now())
				if err != nil {
					return err
				}
				if !ok {
					a.log.WithField("post", postId).Info("Post already published, federating again")
				}
				n, err := a.publisher().PublishPost(ctx, postId)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %d deliveries\n", n)
				return nil
			})
		},
	}
}
