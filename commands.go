// Package main - commands.go
//
// Offline subcommands that inspect or edit persisted state:
//
//	config show                  - effective configuration as YAML (cookies omitted)
//	config init [--force]        - write the default configuration to --config
//	knowledge list               - skills, items and remembered positions
//	knowledge add-skill          - upsert a skill record
//	knowledge add-item           - upsert an item record
//	knowledge remove-skill <id>  - delete a skill record
//	knowledge remember <id> <x> <y> [--text]
//	                             - pin a UI element position (first position wins)
//
// None of these start the browser or the control loop.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"gamepilot/internal/config"
	"gamepilot/internal/game"
	"gamepilot/internal/knowledge"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialize the configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := config.LoadFile(flagConfig)
		if err != nil {
			return err
		}
		f.Cookies = nil

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		return enc.Close()
	},
}

var flagForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to --config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.ExpandPath(flagConfig)
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !flagForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.SaveFile(path, config.DefaultFile()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Inspect and edit learned skills, items and positions",
}

// openKnowledge opens the catalog named by the configuration.
func openKnowledge() (*knowledge.Store, config.File, error) {
	f := loadConfig()
	path, err := config.ExpandPath(f.Knowledge.DBPath)
	if err != nil {
		return nil, f, err
	}
	store, err := knowledge.Open(path)
	if err != nil {
		return nil, f, err
	}
	return store, f, nil
}

func openMemory(f config.File) (*knowledge.Memory, error) {
	path, err := config.ExpandPath(f.Knowledge.MemoryPath)
	if err != nil {
		return nil, err
	}
	mem := knowledge.NewMemory(path)
	if err := mem.Load(); err != nil {
		return nil, err
	}
	return mem, nil
}

var knowledgeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List skills, items and remembered positions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, f, err := openKnowledge()
		if err != nil {
			return err
		}
		defer store.Close()

		skills, err := store.Skills()
		if err != nil {
			return err
		}
		items, err := store.Items()
		if err != nil {
			return err
		}
		mem, err := openMemory(f)
		if err != nil {
			return err
		}
		writeKnowledge(cmd.OutOrStdout(), skills, items, mem.All())
		return nil
	},
}

func writeKnowledge(out io.Writer, skills []knowledge.Skill, items []knowledge.Item, elements []knowledge.Element) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "SKILLS (%d)\n", len(skills))
	if len(skills) > 0 {
		fmt.Fprintln(w, "  ID\tNAME\tEFFECT\tVALUE\tCOOLDOWN\tPOSITION")
		for _, s := range skills {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%g\t%dms\t%s\n", s.ID, s.Name, s.EffectType, s.EffectValue, s.CooldownMs, positionString(s.Position))
		}
	}

	fmt.Fprintf(w, "\nITEMS (%d)\n", len(items))
	if len(items) > 0 {
		fmt.Fprintln(w, "  ID\tNAME\tTYPE\tATTRIBUTES\tPOSITION")
		for _, it := range items {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%d\t%s\n", it.ID, it.Name, it.ItemType, len(it.Attributes), positionString(it.Position))
		}
	}

	fmt.Fprintf(w, "\nPOSITIONS (%d)\n", len(elements))
	if len(elements) > 0 {
		fmt.Fprintln(w, "  ID\tTEXT\tPOSITION\tSEEN")
		for _, e := range elements {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%d\n", e.ID, e.Text, e.Point(), e.Count)
		}
	}
}

func positionString(p *game.Point) string {
	if p == nil {
		return "-"
	}
	return p.String()
}

var skillFlags struct {
	id          string
	name        string
	description string
	effect      string
	value       float64
	cooldownMs  int64
	x, y        int
}

var knowledgeAddSkillCmd = &cobra.Command{
	Use:   "add-skill",
	Short: "Add or replace a skill",
	Long: `Add or replace a skill record. The id is the skill slot index used
for priority ranking, so it must be a non-negative integer.

Examples:
  gamepilot knowledge add-skill --id 0 --name Stun --effect CONTROL
  gamepilot knowledge add-skill --id 1 --name Fireball --effect DAMAGE --value 120 --x 900 --y 1440`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if n, err := strconv.Atoi(skillFlags.id); err != nil || n < 0 {
			return fmt.Errorf("skill id %q must be a non-negative integer", skillFlags.id)
		}
		sk := knowledge.Skill{
			ID:          skillFlags.id,
			Name:        skillFlags.name,
			Description: skillFlags.description,
			EffectType:  skillFlags.effect,
			EffectValue: skillFlags.value,
			CooldownMs:  skillFlags.cooldownMs,
		}
		if cmd.Flags().Changed("x") || cmd.Flags().Changed("y") {
			p := game.NewPoint(skillFlags.x, skillFlags.y)
			sk.Position = &p
		}

		store, _, err := openKnowledge()
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.UpsertSkill(sk); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved skill %s (%s)\n", sk.ID, sk.Name)
		return nil
	},
}

var itemFlags struct {
	id          string
	name        string
	description string
	itemType    string
	attrs       map[string]string
	x, y        int
}

var knowledgeAddItemCmd = &cobra.Command{
	Use:   "add-item",
	Short: "Add or replace an item",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		it := knowledge.Item{
			ID:          itemFlags.id,
			Name:        itemFlags.name,
			Description: itemFlags.description,
			ItemType:    itemFlags.itemType,
			Attributes:  itemFlags.attrs,
		}
		if cmd.Flags().Changed("x") || cmd.Flags().Changed("y") {
			p := game.NewPoint(itemFlags.x, itemFlags.y)
			it.Position = &p
		}

		store, _, err := openKnowledge()
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.UpsertItem(it); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved item %s (%s)\n", it.ID, it.Name)
		return nil
	},
}

var knowledgeRemoveSkillCmd = &cobra.Command{
	Use:   "remove-skill <id>",
	Short: "Delete a skill",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openKnowledge()
		if err != nil {
			return err
		}
		defer store.Close()

		err = store.DeleteSkill(args[0])
		if errors.Is(err, knowledge.ErrNotFound) {
			return fmt.Errorf("no skill with id %q", args[0])
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted skill %s\n", args[0])
		return nil
	},
}

var flagRememberText string

var knowledgeRememberCmd = &cobra.Command{
	Use:   "remember <id> <x> <y>",
	Short: "Pin a UI element position",
	Long: `Remember where a UI element is. An element that is already known keeps
its first position; only its sighting count grows.

Skill buttons use the ids skill_slot_0 .. skill_slot_4; a remembered skill
slot overrides the default layout anchor.

Examples:
  gamepilot knowledge remember skill_slot_1 880 1500 --text Fireball`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		x, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("x: %w", err)
		}
		y, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("y: %w", err)
		}

		mem, err := openMemory(loadConfig())
		if err != nil {
			return err
		}
		e := mem.Remember(args[0], flagRememberText, x, y)
		if err := mem.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s at %s (seen %d)\n", e.ID, e.Point(), e.Count)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&flagForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configShowCmd, configInitCmd)

	sf := knowledgeAddSkillCmd.Flags()
	sf.StringVar(&skillFlags.id, "id", "", "Skill id (slot index)")
	sf.StringVar(&skillFlags.name, "name", "", "Display name")
	sf.StringVar(&skillFlags.description, "description", "", "Description")
	sf.StringVar(&skillFlags.effect, "effect", "DAMAGE", "Effect type: CONTROL, DAMAGE, BUFF, HEAL, MOBILITY, DEBUFF")
	sf.Float64Var(&skillFlags.value, "value", 0, "Effect value")
	sf.Int64Var(&skillFlags.cooldownMs, "cooldown", 0, "Cooldown in milliseconds")
	sf.IntVar(&skillFlags.x, "x", 0, "Button x position")
	sf.IntVar(&skillFlags.y, "y", 0, "Button y position")
	_ = knowledgeAddSkillCmd.MarkFlagRequired("id")

	itf := knowledgeAddItemCmd.Flags()
	itf.StringVar(&itemFlags.id, "id", "", "Item id")
	itf.StringVar(&itemFlags.name, "name", "", "Display name")
	itf.StringVar(&itemFlags.description, "description", "", "Description")
	itf.StringVar(&itemFlags.itemType, "type", "", "Item type")
	itf.StringToStringVar(&itemFlags.attrs, "attr", nil, "Attribute key=value (repeatable)")
	itf.IntVar(&itemFlags.x, "x", 0, "Slot x position")
	itf.IntVar(&itemFlags.y, "y", 0, "Slot y position")
	_ = knowledgeAddItemCmd.MarkFlagRequired("id")

	knowledgeRememberCmd.Flags().StringVar(&flagRememberText, "text", "", "Label shown on the element")

	knowledgeCmd.AddCommand(knowledgeListCmd, knowledgeAddSkillCmd, knowledgeAddItemCmd, knowledgeRemoveSkillCmd, knowledgeRememberCmd)
}
