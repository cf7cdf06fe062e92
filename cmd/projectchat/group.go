package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/projectchat-server/internal/service/membership"
	"github.com/vovakirdan/projectchat-server/internal/store/sqlite"
)

var (
	groupProjectID    int64
	groupName         string
	groupInstructorID int64
	groupID           int64
	memberUserID      int64
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage project groups",
}

var groupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a project group with its instructor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withGroups(cmd, func(ctx context.Context, groups *membership.Service) error {
			g, err := groups.CreateGroup(ctx, groupProjectID, groupName, groupInstructorID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "group %d created for project %d\n", g.ID, g.ProjectID)
			return nil
		})
	},
}

var groupAddMemberCmd = &cobra.Command{
	Use:   "add-member",
	Short: "Record an accepted participant",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withGroups(cmd, func(ctx context.Context, groups *membership.Service) error {
			if err := groups.Accept(ctx, groupID, memberUserID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d added to group %d\n", memberUserID, groupID)
			return nil
		})
	},
}

var groupRemoveMemberCmd = &cobra.Command{
	Use:   "remove-member",
	Short: "Revoke a participant's membership",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withGroups(cmd, func(ctx context.Context, groups *membership.Service) error {
			if err := groups.Remove(ctx, groupID, memberUserID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d removed from group %d\n", memberUserID, groupID)
			return nil
		})
	},
}

var groupMembersCmd = &cobra.Command{
	Use:   "members",
	Short: "List a group's members",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withGroups(cmd, func(ctx context.Context, groups *membership.Service) error {
			if _, err := groups.GetGroup(ctx, groupID); err != nil {
				return err
			}
			members, err := groups.MembersOf(ctx, groupID)
			if err != nil {
				return err
			}
			for _, id := range members {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		})
	},
}

func withGroups(cmd *cobra.Command, fn func(context.Context, *membership.Service) error) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	return fn(cmd.Context(), membership.New(st, 0))
}

func init() {
	rootCmd.AddCommand(groupCmd)
	groupCmd.PersistentFlags().String("database-path", "", "SQLite database file")

	groupCreateCmd.Flags().Int64Var(&groupProjectID, "project-id", 0, "project the group belongs to")
	groupCreateCmd.Flags().StringVar(&groupName, "name", "", "group display name")
	groupCreateCmd.Flags().Int64Var(&groupInstructorID, "instructor-id", 0, "instructor user id")

	for _, c := range []*cobra.Command{groupAddMemberCmd, groupRemoveMemberCmd, groupMembersCmd} {
		c.Flags().Int64Var(&groupID, "group-id", 0, "group id")
		_ = c.MarkFlagRequired("group-id")
	}
	for _, c := range []*cobra.Command{groupAddMemberCmd, groupRemoveMemberCmd} {
		c.Flags().Int64Var(&memberUserID, "user-id", 0, "member user id")
		_ = c.MarkFlagRequired("user-id")
	}

	groupCmd.AddCommand(groupCreateCmd, groupAddMemberCmd, groupRemoveMemberCmd, groupMembersCmd)
}
