package sqlinline

const QSelectUserByID = `--sql 97d13aca-3114-4500-9ac2-f2bf59d32184
select id, email, name, role, credits, created_at, updated_at
from users
where id = $1::uuid
limit 1;
`

const QSelectUserByEmail = `--sql 76224765-2598-4bc1-9be9-5d66b6260990
select id, email, name, role, credits, created_at, updated_at
from users
where email = $1::text
limit 1;
`
