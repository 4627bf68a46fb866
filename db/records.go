package db

import (
	"database/sql"

	"projectdash/models"
)

// Project and team records are plain CRUD over schema defaults. Field values
// are not validated here; the schema is the only gatekeeper.

func GetProjects() ([]models.Project, error) {
	rows, err := DB.Query("SELECT id, name, description, deadline, progress, status FROM projects")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		var description sql.NullString
		var deadline sql.NullTime
		if err := rows.Scan(&p.ID, &p.Name, &description, &deadline, &p.Progress, &p.Status); err != nil {
			return nil, err
		}
		p.Description = description.String
		p.Deadline = deadline.Time
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func AddProject(name, description, deadline string) (int64, error) {
	var dl any
	if deadline != "" {
		dl = deadline
	}
	res, err := DB.Exec("INSERT INTO projects (name, description, deadline) VALUES (?, ?, ?)", name, description, dl)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateProject is a full-record replace by id.
func UpdateProject(id int, name, description, deadline string, progress int, status string) error {
	_, err := DB.Exec("UPDATE projects SET name = ?, description = ?, deadline = ?, progress = ?, status = ? WHERE id = ?",
		name, description, deadline, progress, status, id)
	return err
}

func GetTeamMembers() ([]models.TeamMember, error) {
	rows, err := DB.Query("SELECT id, name, email, role, created_at FROM team")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.TeamMember
	for rows.Next() {
		var m models.TeamMember
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func AddTeamMember(name, email, role string) (int64, error) {
	if role == "" {
		role = "member"
	}
	res, err := DB.Exec("INSERT INTO team (name, email, role) VALUES (?, ?, ?)", name, email, role)
	if isUniqueViolation(err) {
		return 0, ErrEmailExists
	}
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
